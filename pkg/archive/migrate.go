package archive

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/sigmanight/basiliskllm/pkg/errs"
	"github.com/sigmanight/basiliskllm/pkg/model"
)

// migrateToCurrent walks raw (a conversation.json tree, any prior version)
// forward to model.CurrentArchiveVersion, one step at a time, the same way
// the conversation_helper.py migrations mutate a dict before pydantic
// validates it. An absent "version" field means v0.
func migrateToCurrent(raw []byte) ([]byte, error) {
	version := gjson.GetBytes(raw, "version")
	v := 0
	if version.Exists() {
		v = int(version.Int())
	}

	if v > model.CurrentArchiveVersion {
		return nil, errs.Newf(errs.KindStorage, "invalid conversation version %d (current is %d)", v, model.CurrentArchiveVersion)
	}

	var err error
	for v < model.CurrentArchiveVersion {
		switch v {
		case 0:
			raw, err = migrateV0ToV1(raw)
		case 1:
			raw, err = migrateV1ToV2(raw)
		default:
			return nil, errs.Newf(errs.KindStorage, "no migration path from version %d", v)
		}
		if err != nil {
			return nil, err
		}
		v++
	}
	return raw, nil
}

// migrateV0ToV1 stamps an explicit version field onto the oldest archive
// shape, which carried no version at all.
func migrateV0ToV1(raw []byte) ([]byte, error) {
	out, err := sjson.SetBytes(raw, "version", 1)
	if err != nil {
		return nil, errs.New(errs.KindStorage, err)
	}
	return out, nil
}

// migrateV1ToV2 renames the singular "system" field (present or absent) to
// a "systems" list, stamping system_index=0 on the last message when a
// system message existed. v1 conversations carry at most one system
// message, so there is never more than one slot to create.
func migrateV1ToV2(raw []byte) ([]byte, error) {
	sys := gjson.GetBytes(raw, "system")

	out, err := sjson.DeleteBytes(raw, "system")
	if err != nil {
		return nil, errs.New(errs.KindStorage, err)
	}

	if !sys.Exists() {
		out, err = sjson.SetRawBytes(out, "systems", []byte("[]"))
		if err != nil {
			return nil, errs.New(errs.KindStorage, err)
		}
		out, err = sjson.SetBytes(out, "version", 2)
		if err != nil {
			return nil, errs.New(errs.KindStorage, err)
		}
		return out, nil
	}

	out, err = sjson.SetRawBytes(out, "systems.-1", []byte(sys.Raw))
	if err != nil {
		return nil, errs.New(errs.KindStorage, err)
	}

	messages := gjson.GetBytes(out, "messages")
	if messages.IsArray() && len(messages.Array()) > 0 {
		lastIdx := len(messages.Array()) - 1
		out, err = sjson.SetBytes(out, fmt.Sprintf("messages.%d.system_index", lastIdx), 0)
		if err != nil {
			return nil, errs.New(errs.KindStorage, err)
		}
	}

	out, err = sjson.SetBytes(out, "version", 2)
	if err != nil {
		return nil, errs.New(errs.KindStorage, err)
	}
	return out, nil
}
