// Package roomid generates random, memorable room identifiers of the
// form word-word-word (e.g. "cosmic-otter-matinee"). The relay treats
// room IDs as opaque caller-supplied strings; this is only a
// convenience for hosts who do not pick their own.
package roomid

import (
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
)

var adjectives = []string{
	"amber", "brave", "calm", "cosmic", "crimson", "dusty", "gentle", "golden",
	"hidden", "jolly", "lively", "lunar", "mellow", "misty", "noble", "quiet",
	"rapid", "shiny", "silent", "snowy", "solar", "swift", "velvet", "wild",
}

var animals = []string{
	"badger", "bison", "crane", "dolphin", "falcon", "ferret", "gecko", "heron",
	"ibis", "koala", "lemur", "lynx", "marmot", "narwhal", "otter", "panda",
	"puffin", "raven", "robin", "seal", "sparrow", "tapir", "walrus", "wren",
}

var showWords = []string{
	"cinema", "curtain", "encore", "feature", "matinee", "montage", "overture",
	"premiere", "preview", "reel", "rerun", "scene", "screening", "sequel",
	"spotlight", "trailer",
}

// Generate returns a fresh three-word room identifier.
func Generate() string {
	return fmt.Sprintf("%s-%s-%s",
		adjectives[randomIndex(len(adjectives))],
		animals[randomIndex(len(animals))],
		showWords[randomIndex(len(showWords))],
	)
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		log.Panic("Failed to generate random index:", err)
	}
	return int(n.Int64())
}
