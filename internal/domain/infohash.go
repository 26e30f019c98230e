package domain

import (
	"errors"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

var ErrInvalidInfoHash = errors.New("invalid info hash")

// ParseInfoHash accepts a 40-character hex hash, optionally prefixed with
// urn:btih:, and returns it lower-cased.
func ParseInfoHash(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(strings.ToLower(value), "urn:btih:")
	if len(value) != 40 {
		return "", ErrInvalidInfoHash
	}
	var hash metainfo.Hash
	if err := hash.FromHexString(value); err != nil {
		return "", ErrInvalidInfoHash
	}
	return hash.HexString(), nil
}

// InfoHashFromMagnet returns the lower-cased v1 hash of a magnet link, or "".
func InfoHashFromMagnet(raw string) string {
	value := strings.TrimSpace(raw)
	if !strings.HasPrefix(strings.ToLower(value), "magnet:?") {
		return ""
	}
	magnet, err := metainfo.ParseMagnetUri(value)
	if err != nil {
		return ""
	}
	return magnet.InfoHash.HexString()
}

// BuildMagnet returns a magnet link for hash with a display name and trackers.
func BuildMagnet(infoHash, name string, trackers []string) string {
	var hash metainfo.Hash
	if err := hash.FromHexString(infoHash); err != nil {
		return ""
	}
	magnet := metainfo.Magnet{
		InfoHash:    hash,
		DisplayName: strings.TrimSpace(name),
		Trackers:    trackers,
	}
	return magnet.String()
}
