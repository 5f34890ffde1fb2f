package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mtbar/concerts/pkg/models"
)

// Button actions. Payloads are "action:arg[:arg]" and stay under the 64 byte callback limit.
const (
	ActionPick         = "pick"
	ActionPoster       = "poster"
	ActionText         = "text"
	ActionPublish      = "publish"
	ActionForcePublish = "publish!"
	ActionEdit         = "edit"
	ActionField        = "field"
	ActionAttach       = "attach"
	ActionDiscard      = "discard"
)

const cancelArg = "cancel"

// Payload encodes a button action with its arguments
func Payload(action string, args ...any) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, action)
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, ":")
}

func parsePayload(payload string) (string, []string) {
	parts := strings.Split(payload, ":")
	return parts[0], parts[1:]
}

func parseID(args []string, i int) (int64, bool) {
	if i >= len(args) {
		return 0, false
	}
	id, err := strconv.ParseInt(args[i], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrEventNotFound)
}
