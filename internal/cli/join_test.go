package cli

import "testing"

func TestParseRoomInputPlainID(t *testing.T) {
	roomID, err := parseRoomInput("cosmic-otter-matinee")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if roomID != "cosmic-otter-matinee" {
		t.Errorf("expected plain ID passthrough, got %q", roomID)
	}
}

func TestParseRoomInputURL(t *testing.T) {
	roomID, err := parseRoomInput("https://watchtogether.fly.dev/w/movie-night")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if roomID != "movie-night" {
		t.Errorf("expected extracted room ID, got %q", roomID)
	}
}

func TestParseRoomInputURLTrailingSlash(t *testing.T) {
	roomID, err := parseRoomInput("https://watchtogether.fly.dev/w/movie-night/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if roomID != "movie-night" {
		t.Errorf("expected extracted room ID, got %q", roomID)
	}
}

func TestParseRoomInputBadURL(t *testing.T) {
	if _, err := parseRoomInput("https://watchtogether.fly.dev/about"); err == nil {
		t.Error("expected error for URL without a room path")
	}
}

func TestParseRoomInputEmpty(t *testing.T) {
	if _, err := parseRoomInput(""); err == nil {
		t.Error("expected error for empty input")
	}
}
