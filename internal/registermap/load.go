package registermap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var compiledSchema = jsonschema.MustCompileString("registermap.json", documentSchema)

// Load reads, schema-validates, and parses the register-map document at
// path, then resolves and validates the block/point relationships: every
// declared block uses fn=3, and every point lies entirely within exactly
// one block.
func Load(path string) (*RegisterMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registermap: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse validates and parses a register-map document already in memory.
func Parse(raw []byte) (*RegisterMap, error) {
	var asAny interface{}
	if err := json.Unmarshal(raw, &asAny); err != nil {
		return nil, fmt.Errorf("registermap: invalid json: %w", err)
	}
	if err := compiledSchema.Validate(asAny); err != nil {
		return nil, fmt.Errorf("registermap: schema validation failed: %w", err)
	}

	var doc document
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("registermap: decode: %w", err)
	}

	for _, b := range doc.Blocks {
		if b.Fn != 3 {
			return nil, fmt.Errorf("registermap: block %q: only fn=3 is supported, got %d", b.Name, b.Fn)
		}
	}

	pointBlock := make(map[string]Block, len(doc.Points))
	for name, p := range doc.Points {
		width, err := p.Type.Width()
		if err != nil {
			return nil, fmt.Errorf("registermap: point %q: %w", name, err)
		}

		var owner *Block
		for i := range doc.Blocks {
			if doc.Blocks[i].contains(p.Addr, width) {
				if owner != nil {
					return nil, fmt.Errorf("registermap: point %q: addr %d matches more than one block (%q and %q)", name, p.Addr, owner.Name, doc.Blocks[i].Name)
				}
				b := doc.Blocks[i]
				owner = &b
			}
		}
		if owner == nil {
			return nil, fmt.Errorf("registermap: point %q: addr %d (width %d) is not contained in any declared block", name, p.Addr, width)
		}
		pointBlock[name] = *owner

		if p.SafeBounds != nil && p.SafeBounds[0] >= p.SafeBounds[1] {
			return nil, fmt.Errorf("registermap: point %q: safe_bounds low must be < high", name)
		}
	}

	return &RegisterMap{
		SchemaVer:  doc.SchemaVer,
		ByteOrder:  doc.ByteOrder,
		WordOrder:  doc.WordOrder,
		blocks:     doc.Blocks,
		points:     doc.Points,
		pointBlock: pointBlock,
		lastSet:    make(map[string]float64),
	}, nil
}
