package entity

// Chunk is one fixed-size slice of a serialized payload. It exists
// only in transit: the codec creates chunks at send time and discards
// them once a session reassembles.
type Chunk struct {
	Index int    `json:"index"`
	Data  string `json:"data"`
}
