// Package archive keeps a verbatim copy of every fetched api page. The
// derived rows can always be rebuilt from here, whatever later code does
// to the schema.
package archive

// Store persists raw pages under slash separated keys.
type Store interface {
	Put(key string, body []byte) error
}
