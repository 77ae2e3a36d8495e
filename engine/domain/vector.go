package domain

import (
	"strconv"
	"strings"
)

// Hit is one similarity match: a hotel id and its index score.
type Hit struct {
	HotelID string  `json:"hotel_id"`
	Score   float32 `json:"score"`
}

// VectorRecord is the stored embedding of one hotel.
type VectorRecord struct {
	HotelID string
	Text    string
	Vector  []float32
}

// EmbeddingText is the text embedded for h. Queries are compared against it,
// so changing the layout requires a full reindex.
func EmbeddingText(h Hotel) string {
	var b strings.Builder
	b.WriteString(h.Description)
	b.WriteString(" Located in ")
	b.WriteString(h.Location)
	b.WriteString(". Price per night: ")
	b.WriteString(strconv.FormatFloat(h.Price, 'f', -1, 64))
	return b.String()
}
