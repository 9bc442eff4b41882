package procreate

import (
	"fmt"
	"time"

	"howett.net/plist"

	"github.com/floegence/brushport/internal/brush"
)

// appleEpoch is the reference date of NSDate.
var appleEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	brushClass = "SilicaBrush"
	dateClass  = "NSDate"
)

// Object indices inside $objects. Index 0 is the archiver's null placeholder.
const (
	objBrush = iota + 1
	objName
	objDate
	objDateClass
	objBrushClass
)

// encodeArchive renders Brush.archive: a binary NSKeyedArchiver property list whose root
// object carries every setting as a top-level key.
func encodeArchive(name string, created time.Time, settings brush.Settings) ([]byte, error) {
	root := make(map[string]any, len(settings)+3)
	for k, v := range settings {
		root[k] = v.Any()
	}
	root["name"] = plist.UID(objName)
	root["creationDate"] = plist.UID(objDate)
	root["$class"] = plist.UID(objBrushClass)

	objects := []any{
		"$null",
		root,
		name,
		map[string]any{
			"NS.time": created.Sub(appleEpoch).Seconds(),
			"$class":  plist.UID(objDateClass),
		},
		classInfo(dateClass),
		classInfo(brushClass),
	}
	doc := map[string]any{
		"$version":  100000,
		"$archiver": "NSKeyedArchiver",
		"$top":      map[string]any{"root": plist.UID(objBrush)},
		"$objects":  objects,
	}
	out, err := plist.Marshal(doc, plist.BinaryFormat)
	if err != nil {
		return nil, fmt.Errorf("encode brush archive: %w", err)
	}
	return out, nil
}

func classInfo(name string) map[string]any {
	return map[string]any{
		"$classname": name,
		"$classes":   []string{name, "NSObject"},
	}
}

// DecodeArchive reads the name, creation date and settings back out of Brush.archive.
// Reserved archiver keys are not returned as settings.
func DecodeArchive(data []byte) (name string, created time.Time, settings map[string]any, err error) {
	var doc struct {
		Objects []any          `plist:"$objects"`
		Top     map[string]any `plist:"$top"`
	}
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		return "", time.Time{}, nil, fmt.Errorf("decode brush archive: %w", err)
	}
	resolve := func(v any) any {
		for {
			uid, ok := v.(plist.UID)
			if !ok || int(uid) >= len(doc.Objects) {
				return v
			}
			v = doc.Objects[uid]
		}
	}
	root, ok := resolve(doc.Top["root"]).(map[string]any)
	if !ok {
		return "", time.Time{}, nil, fmt.Errorf("decode brush archive: root object missing")
	}
	settings = make(map[string]any, len(root))
	for k, v := range root {
		switch k {
		case "$class":
		case "name":
			name, _ = resolve(v).(string)
		case "creationDate":
			if d, ok := resolve(v).(map[string]any); ok {
				if secs, ok := d["NS.time"].(float64); ok {
					created = appleEpoch.Add(time.Duration(secs * float64(time.Second)))
				}
			}
		default:
			settings[k] = v
		}
	}
	return name, created, settings, nil
}
