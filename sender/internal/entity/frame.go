package entity

type Frame struct {
	ID       string
	Sequence int32
	Width    int32
	Height   int32
	Payload  []byte
}
