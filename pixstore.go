/*
Pixstore is the pixel-data storage engine for microscopy image repositories.
It decides, per pixels set, whether pixel data lives in a flat binary file,
in a tiled multi-resolution pyramid, or is read directly from the original
DeltaVision file it was imported from, and it returns a uniform pixel buffer
over whichever storage applies.

# Storage layout

Flat files and original files live under a single storage root, with ids
spread over nested directories so no directory holds more than a thousand
entries:

	<root>/Pixels/Dir-001/Dir-234/1234567            flat pixels file
	<root>/Pixels/Dir-001/Dir-234/1234567_pyramid    pyramid for the same pixels set
	<root>/Files/Dir-001/Dir-234/1234567             original file

Pixels sets whose planes hold more than a threshold of pixels (1024*1024 by
default) need pyramids.  When only a legacy flat file exists for such a set, a
missing-pyramid event is published and the pyramid builder converts the flat
file before the request is retried.

Packages

	pix       pixel descriptors, pixel types, errors, serialization and logging
	format    DeltaVision and decoded-image readers; tiled pyramid container
	buffer    flat, pyramid, direct and pass-through pixel buffers
	storage   path resolver and the pixels storage service
	message   event bus, missing-pyramid events and the Kafka notifier
	builder   converts flat storage into pyramids
	metadata  pixels descriptors and original files from a JSON manifest
	server    TOML configuration and the HTTP API

The pixstore command serves the HTTP API and performs storage maintenance
from the command line:

	pixstore -config=/path/to/config.toml serve
	pixstore -config=/path/to/config.toml info 1234567
*/
package pixstore

// Version is the version of the pixstore engine.
const Version = "0.1.0"
