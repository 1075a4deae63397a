package messaging

import (
	"fmt"

	"github.com/zlnvch/duo/models"
)

// Preview is a one-line rendering of a message. Drawings that fail to decode
// render as CouldNotRender.
func Preview(m models.Message) string {
	switch m.Kind {
	case models.KindText:
		return m.Content
	case models.KindDrawing:
		strokes, err := models.DecodeDrawing(m.Content)
		if err != nil {
			return CouldNotRender
		}
		if len(strokes) == 1 {
			return "sent a doodle (1 stroke)"
		}
		return fmt.Sprintf("sent a doodle (%d strokes)", len(strokes))
	}
	return CouldNotRender
}
