package types

import (
	jsonpatch "github.com/evanphx/json-patch"
	jsoniter "github.com/json-iterator/go"
)

// Properties is a point-in-time twin snapshot: the desired side written by
// the service and the reported side written by the device.
type Properties struct {
	writable *PropertyCollection
	reported *PropertyCollection
}

// NewProperties pairs the two sides. Nil collections are replaced by empty ones.
func NewProperties(writable, reported *PropertyCollection) *Properties {
	if writable == nil {
		writable = NewPropertyCollection()
	}
	if reported == nil {
		reported = NewPropertyCollection()
	}
	return &Properties{writable: writable, reported: reported}
}

// ParseTwin parses a twin document of the form {"desired":{...},"reported":{...}}.
func ParseTwin(data []byte) (*Properties, error) {
	var desired, reported *PropertyCollection

	iter := jsoniter.ParseBytes(jsoniter.ConfigCompatibleWithStandardLibrary, data)
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, NewSerializationError("parse twin", InvalidArgument("twin document is not a JSON object"))
	}
	iter.ReadMapCB(func(it *jsoniter.Iterator, key string) bool {
		switch key {
		case "desired":
			if it.WhatIsNext() == jsoniter.ObjectValue {
				desired = readCollection(it)
			} else {
				it.Skip()
			}
		case "reported":
			if it.WhatIsNext() == jsoniter.ObjectValue {
				reported = readCollection(it)
			} else {
				it.Skip()
			}
		default:
			it.Skip()
		}
		return it.Error == nil
	})
	if err := finish(iter); err != nil {
		return nil, NewSerializationError("parse twin", err)
	}

	return NewProperties(desired, reported), nil
}

// Writable returns the desired side.
func (p *Properties) Writable() *PropertyCollection { return p.writable }

// Reported returns the reported side.
func (p *Properties) Reported() *PropertyCollection { return p.reported }

// Get returns the reported value of a root-level property.
func (p *Properties) Get(name string) (Value, bool) {
	return p.reported.Get(name)
}

// GetComponent returns the reported value of a property under component.
func (p *Properties) GetComponent(component, name string) (Value, bool) {
	v, ok := p.reported.Get(component)
	if !ok {
		return Value{}, false
	}
	nested, ok := v.Collection()
	if !ok {
		return Value{}, false
	}
	return nested.Get(name)
}

// MergeDesired returns a new snapshot whose desired side is patch merged into
// this one as a JSON merge patch: null removes a property, objects merge
// recursively. The version of patch replaces the desired version when present.
// The reported side is shared.
func (p *Properties) MergeDesired(patch []byte) (*Properties, error) {
	doc, err := p.writable.MarshalJSON()
	if err != nil {
		return nil, err
	}
	merged, err := jsonpatch.MergePatch(doc, patch)
	if err != nil {
		return nil, NewSerializationError("merge desired patch", err)
	}

	desired, err := ParsePropertyCollection(merged)
	if err != nil {
		return nil, err
	}
	if !desired.hasVersion && p.writable.hasVersion {
		desired.version = p.writable.version
		desired.hasVersion = true
	}
	return NewProperties(desired, p.reported), nil
}
