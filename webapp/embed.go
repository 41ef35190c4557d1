// Package webapp provides embedded static files for the browser client.
package webapp

import "embed"

//go:embed index.html app.js
var Assets embed.FS
