package sqlite

import (
	"encoding/json"
	"fmt"

	"github.com/loom-cfg/loom/pkg/element"
)

const (
	kindObjectType = "object_type"
	kindInstance   = "instance"
)

func encodeElement(e element.Element) (kind string, payload []byte, err error) {
	switch el := e.(type) {
	case *element.ObjectType:
		payload, err = json.Marshal(el)
		return kindObjectType, payload, err
	case *element.Instance:
		payload, err = json.Marshal(el)
		return kindInstance, payload, err
	default:
		return "", nil, fmt.Errorf("unknown element kind %T", e)
	}
}

func decodeElement(kind string, payload []byte) (element.Element, error) {
	switch kind {
	case kindObjectType:
		var t element.ObjectType
		if err := json.Unmarshal(payload, &t); err != nil {
			return nil, err
		}
		return &t, nil
	case kindInstance:
		var i element.Instance
		if err := json.Unmarshal(payload, &i); err != nil {
			return nil, err
		}
		return &i, nil
	default:
		return nil, fmt.Errorf("unknown element kind %q", kind)
	}
}
