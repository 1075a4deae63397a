package store

import (
	"fmt"
	"strings"
)

func UserPath(userId string) string {
	return "users/" + userId
}

func UserFieldPath(userId string, field string) string {
	return "users/" + userId + "/" + field
}

func PairCodePath(code string) string {
	return "pairCodes/" + code
}

func PairPath(pairId string) string {
	return "pairs/" + pairId
}

func HistoryPath(pairId string) string {
	return "messages/" + pairId + "/history"
}

func MessagePath(pairId string, messageId string) string {
	return HistoryPath(pairId) + "/" + messageId
}

func LatestPath(pairId string) string {
	return "messages/" + pairId + "/latest"
}

func PixelsPath(pairId string) string {
	return "liveCanvas/" + pairId + "/pixels"
}

func ActivityPath(pairId string) string {
	return "liveCanvas/" + pairId + "/lastActivity"
}

func NudgePath(pairId string) string {
	return "nudges/" + pairId
}

// ValidatePath rejects empty paths and paths with empty segments.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return nil
}

// Split returns the parent node and child name of a path. A single segment
// path has no parent.
func Split(path string) (parent string, child string, err error) {
	if err := ValidatePath(path); err != nil {
		return "", "", err
	}
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path, nil
	}
	return path[:i], path[i+1:], nil
}

// SplitLeaf is Split for paths that must name a child of a node.
func SplitLeaf(path string) (parent string, child string, err error) {
	parent, child, err = Split(path)
	if err != nil {
		return "", "", err
	}
	if parent == "" {
		return "", "", fmt.Errorf("%w: %q is not a leaf path", ErrInvalidPath, path)
	}
	return parent, child, nil
}
