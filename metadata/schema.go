package metadata

// manifestSchema is the JSON Schema every manifest must satisfy.
const manifestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["pixels"],
	"properties": {
		"pixels": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "size_x", "size_y", "size_z", "size_c", "size_t", "type"],
				"properties": {
					"id": {"type": "integer", "minimum": 0},
					"size_x": {"type": "integer", "minimum": 1},
					"size_y": {"type": "integer", "minimum": 1},
					"size_z": {"type": "integer", "minimum": 1},
					"size_c": {"type": "integer", "minimum": 1},
					"size_t": {"type": "integer", "minimum": 1},
					"type": {
						"enum": ["uint8", "int8", "uint16", "int16", "uint32", "int32",
							"uint64", "int64", "float32", "float64"]
					},
					"original_files": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["id", "format"],
							"properties": {
								"id": {"type": "integer", "minimum": 0},
								"name": {"type": "string"},
								"format": {"type": "string"}
							}
						}
					}
				}
			}
		}
	}
}`
