package registermap

// documentSchema is the JSON Schema for a register-map document, compiled
// once at package init and used to validate every file before it is
// unmarshaled — the same CompileString-at-load shape the family loader's
// device-config and enable-map documents use.
const documentSchema = `{
	"type": "object",
	"required": ["schema_ver", "byte_order", "word_order", "blocks", "points"],
	"properties": {
		"schema_ver": { "type": "string" },
		"byte_order": { "enum": ["BE", "LE"] },
		"word_order": { "enum": ["ABCD", "CDAB"] },
		"blocks": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "fn", "start", "len"],
				"properties": {
					"name": { "type": "string", "minLength": 1 },
					"fn": { "type": "integer", "const": 3 },
					"start": { "type": "integer", "minimum": 0, "maximum": 65535 },
					"len": { "type": "integer", "minimum": 1, "maximum": 125 }
				}
			}
		},
		"points": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"required": ["addr", "type"],
				"properties": {
					"addr": { "type": "integer", "minimum": 0, "maximum": 65535 },
					"type": { "enum": ["u16", "i16", "u32", "i32", "float32"] },
					"scale": { "type": "number" },
					"offset": { "type": "number" },
					"byte_order": { "enum": ["BE", "LE"] },
					"word_order": { "enum": ["ABCD", "CDAB"] },
					"safe_bounds": {
						"type": "array",
						"minItems": 2,
						"maxItems": 2,
						"items": { "type": "number" }
					},
					"deadband": { "type": "number", "minimum": 0 },
					"ro": { "type": "boolean" }
				}
			}
		}
	}
}`
