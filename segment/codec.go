package segment

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec turns a collection image into the bytes of a segment block.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type GobCodec struct{}

func (GobCodec) Name() string {
	return "gob"
}

func (GobCodec) Marshal(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := gob.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBORCodec() (*CBORCodec, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return &CBORCodec{enc: enc, dec: dec}, nil
}

func (c *CBORCodec) Name() string {
	return "cbor"
}

func (c *CBORCodec) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c *CBORCodec) Unmarshal(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}

func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "gob":
		return GobCodec{}, nil
	case "cbor":
		return NewCBORCodec()
	}
	return nil, fmt.Errorf("unknown codec '%s'", name)
}
