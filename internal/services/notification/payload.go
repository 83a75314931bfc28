package notification

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"menu-orders/internal/models"
)

// kindByType maps the payload "type" discriminator to an entity kind
var kindByType = map[string]models.EntityKind{
	models.NotificationNewOrder:   models.KindOrder,
	models.NotificationNewRequest: models.KindRequest,
	models.NotificationNewJob:     models.KindJob,
}

// idKeys lists, per kind, the payload keys holding the entity id in the
// order they are tried. The kind specific key always wins over "id".
var idKeys = map[models.EntityKind][]string{
	models.KindOrder:   {"orderId", "id"},
	models.KindRequest: {"requestId", "id"},
	models.KindJob:     {"jobId", "id"},
}

// ExtractTarget derives a route target from a payload. ok is false when the
// type is unknown or no candidate key holds a usable id.
func ExtractTarget(payload models.NotificationPayload) (target models.RouteTarget, ok bool) {
	typ, _ := payload["type"].(string)
	kind, known := kindByType[strings.TrimSpace(typ)]
	if !known {
		return models.RouteTarget{}, false
	}

	for _, key := range idKeys[kind] {
		if id, present := canonicalID(payload[key]); present {
			return models.RouteTarget{Kind: kind, ID: id}, true
		}
	}
	return models.RouteTarget{}, false
}

// canonicalID reconciles the shapes an id arrives in. Integers and integral
// floats become decimal strings, numeric strings are normalized the same way,
// other non-empty strings are kept verbatim. Negative and fractional numbers
// are absent.
func canonicalID(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		s := strings.TrimSpace(id)
		switch s {
		case "", "null", "undefined":
			return "", false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return nonNegative(n)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return integralFloat(f)
		}
		return s, true
	case float64:
		return integralFloat(id)
	case int:
		return nonNegative(int64(id))
	case int32:
		return nonNegative(int64(id))
	case int64:
		return nonNegative(id)
	case json.Number:
		return canonicalID(id.String())
	default:
		return "", false
	}
}

// integralFloat accepts whole numbers in [0, 2^63)
func integralFloat(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < 0 || f >= math.MaxInt64 {
		return "", false
	}
	return strconv.FormatInt(int64(f), 10), true
}

func nonNegative(n int64) (string, bool) {
	if n < 0 {
		return "", false
	}
	return strconv.FormatInt(n, 10), true
}
