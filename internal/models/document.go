package models

// Document is a record read from the remote document store.
type Document struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

// Field returns the raw value stored under key.
func (d Document) Field(key string) (interface{}, bool) {
	if d.Fields == nil {
		return nil, false
	}
	v, ok := d.Fields[key]
	return v, ok
}
