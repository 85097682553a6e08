/*
Package server provides the HTTP interface to pixels storage and wires the
storage service to its format library, event bus, pyramid builder and Kafka
notifier from a TOML configuration.

HTTP API

	GET    /api/server/info
	GET    /api/pixels/{id}/info
	GET    /api/pixels/{id}/plane/{z}/{c}/{t}[?format=png]
	PUT    /api/pixels/{id}/plane/{z}/{c}/{t}
	GET    /api/pixels/{id}/tile/{z}/{c}/{t}/{x}/{y}/{width}/{height}[?level=n]
	POST   /api/pixels/{id}/pyramid
	DELETE /api/pixels/{id}

Pixel data is sent as raw big-endian bytes unless a PNG is requested.  Errors
are JSON objects with an "error" field.
*/
package server
