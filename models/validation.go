package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrInvalidDrawing = errors.New("invalid drawing")

var hexColorRegex = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

const (
	minStrokeWidth = 1
	maxStrokeWidth = 40
	maxStrokes     = 500
	maxPathLength  = 20000
)

func IsHexColor(s string) bool {
	return hexColorRegex.MatchString(s)
}

// DecodeDrawing parses and validates the content of a drawing message.
func DecodeDrawing(content string) ([]DrawingStroke, error) {
	var strokes []DrawingStroke
	if err := json.Unmarshal([]byte(content), &strokes); err != nil {
		return nil, fmt.Errorf("%w: invalid content format", ErrInvalidDrawing)
	}

	if len(strokes) == 0 {
		return nil, fmt.Errorf("%w: no strokes", ErrInvalidDrawing)
	}
	if len(strokes) > maxStrokes {
		return nil, fmt.Errorf("%w: too many strokes", ErrInvalidDrawing)
	}

	for i, s := range strokes {
		if strings.TrimSpace(s.Path) == "" {
			return nil, fmt.Errorf("%w: stroke %d has empty path", ErrInvalidDrawing, i)
		}
		if len(s.Path) > maxPathLength {
			return nil, fmt.Errorf("%w: stroke %d path too long", ErrInvalidDrawing, i)
		}
		if !IsHexColor(s.Color) {
			return nil, fmt.Errorf("%w: stroke %d has invalid color", ErrInvalidDrawing, i)
		}
		if s.Width < minStrokeWidth || s.Width > maxStrokeWidth {
			return nil, fmt.Errorf("%w: stroke %d has invalid width", ErrInvalidDrawing, i)
		}
	}

	return strokes, nil
}

func EncodeDrawing(strokes []DrawingStroke) (string, error) {
	b, err := json.Marshal(strokes)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
