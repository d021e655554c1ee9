// Package encoding centralizes the CBOR codec used for every wire message
// and persisted structure so all packages agree on one deterministic
// encoding mode.
package encoding

import "github.com/fxamacker/cbor/v2"

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Marshal converts a struct to deterministic CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal converts CBOR bytes back into a struct.
func Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}
