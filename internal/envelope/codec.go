package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeError reports malformed wire bytes. It is distinct from schema
// validation failures: decoding happens before the decoded content is
// ever validated.
type DecodeError struct {
	cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed wire message: %v", e.cause)
}

func (e *DecodeError) Unwrap() error { return e.cause }

// Encode serializes an envelope to its JSON wire form.
func Encode(e *Envelope) ([]byte, error) {
	if e == nil {
		return nil, errors.New("nil envelope")
	}
	return json.Marshal(e)
}

// Decode parses wire bytes into an envelope. The round-trip law holds
// for every schema-valid envelope: Decode(Encode(e)) equals e field for
// field. Malformed bytes yield a *DecodeError.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, &DecodeError{cause: err}
	}
	return &e, nil
}
