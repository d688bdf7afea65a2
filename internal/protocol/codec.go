package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope field numbers.
const (
	fieldCommandID     protowire.Number = 1
	fieldCommandStatus protowire.Number = 2
	fieldHasNext       protowire.Number = 3

	numEmpty                protowire.Number = 5
	numStorageListRequest   protowire.Number = 7
	numStorageListResponse  protowire.Number = 8
	numStorageReadRequest   protowire.Number = 9
	numStorageReadResponse  protowire.Number = 10
	numStorageWriteRequest  protowire.Number = 11
	numStorageDeleteRequest protowire.Number = 12
	numAppStartRequest      protowire.Number = 16
	numStorageStatRequest   protowire.Number = 24
	numStorageStatResponse  protowire.Number = 25
	numPlayAlertRequest     protowire.Number = 32
	numSetDateTimeRequest   protowire.Number = 33
)

// Marshal serializes the envelope. Zero-valued fields are omitted,
// proto3 style.
func (m *Main) Marshal() []byte {
	var b []byte
	if m.CommandID != 0 {
		b = protowire.AppendTag(b, fieldCommandID, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.CommandID))
	}
	if m.Status != StatusOK {
		b = protowire.AppendTag(b, fieldCommandStatus, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Status))
	}
	if m.HasNext {
		b = protowire.AppendTag(b, fieldHasNext, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if m.Content != nil {
		b = protowire.AppendTag(b, m.Content.number(), protowire.BytesType)
		b = protowire.AppendBytes(b, m.Content.marshal())
	}
	return b
}

// Unmarshal parses one envelope from exactly one frame's payload.
// Unknown fields are skipped so newer firmware revisions stay readable.
func Unmarshal(b []byte) (*Main, error) {
	m := &Main{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("protocol: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldCommandID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("protocol: command_id: %w", protowire.ParseError(n))
			}
			m.CommandID = uint32(v)
			b = b[n:]
		case fieldCommandStatus:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("protocol: command_status: %w", protowire.ParseError(n))
			}
			m.Status = CommandStatus(v)
			b = b[n:]
		case fieldHasNext:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("protocol: has_next: %w", protowire.ParseError(n))
			}
			m.HasNext = v != 0
			b = b[n:]
		default:
			if typ == protowire.BytesType {
				sub, n := protowire.ConsumeBytes(b)
				if n < 0 {
					return nil, fmt.Errorf("protocol: content: %w", protowire.ParseError(n))
				}
				content, err := unmarshalContent(num, sub)
				if err != nil {
					return nil, err
				}
				if content != nil {
					m.Content = content
				}
				b = b[n:]
				continue
			}
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("protocol: field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return m, nil
}

// unmarshalContent decodes one oneof variant. An unrecognized number
// returns (nil, nil): the field is treated as unknown and skipped.
func unmarshalContent(num protowire.Number, b []byte) (Content, error) {
	switch num {
	case numEmpty:
		return &Empty{}, nil
	case numStorageListRequest:
		path, err := unmarshalPathOnly("storage_list_request", b)
		if err != nil {
			return nil, err
		}
		return &StorageListRequest{Path: path}, nil
	case numStorageListResponse:
		return unmarshalStorageListResponse(b)
	case numStorageReadRequest:
		path, err := unmarshalPathOnly("storage_read_request", b)
		if err != nil {
			return nil, err
		}
		return &StorageReadRequest{Path: path}, nil
	case numStorageReadResponse:
		return unmarshalStorageReadResponse(b)
	case numStorageWriteRequest:
		return unmarshalStorageWriteRequest(b)
	case numStorageDeleteRequest:
		return unmarshalStorageDeleteRequest(b)
	case numAppStartRequest:
		return unmarshalAppStartRequest(b)
	case numStorageStatRequest:
		path, err := unmarshalPathOnly("storage_stat_request", b)
		if err != nil {
			return nil, err
		}
		return &StorageStatRequest{Path: path}, nil
	case numStorageStatResponse:
		return unmarshalStorageStatResponse(b)
	case numPlayAlertRequest:
		return &PlayAlertRequest{}, nil
	case numSetDateTimeRequest:
		return unmarshalSetDateTimeRequest(b)
	}
	return nil, nil
}

// --- content variants ---

func (*Empty) number() protowire.Number { return numEmpty }
func (*Empty) marshal() []byte          { return nil }

func (*StorageListRequest) number() protowire.Number { return numStorageListRequest }
func (r *StorageListRequest) marshal() []byte        { return appendString(nil, 1, r.Path) }

func (*StorageListResponse) number() protowire.Number { return numStorageListResponse }
func (r *StorageListResponse) marshal() []byte {
	var b []byte
	for i := range r.Files {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Files[i].marshal())
	}
	return b
}

func (*StorageReadRequest) number() protowire.Number { return numStorageReadRequest }
func (r *StorageReadRequest) marshal() []byte        { return appendString(nil, 1, r.Path) }

func (*StorageReadResponse) number() protowire.Number { return numStorageReadResponse }
func (r *StorageReadResponse) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Chunk.marshal())
	return b
}

func (*StorageWriteRequest) number() protowire.Number { return numStorageWriteRequest }
func (r *StorageWriteRequest) marshal() []byte {
	b := appendString(nil, 1, r.Path)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Chunk.marshal())
	return b
}

func (*StorageDeleteRequest) number() protowire.Number { return numStorageDeleteRequest }
func (r *StorageDeleteRequest) marshal() []byte {
	b := appendString(nil, 1, r.Path)
	if r.Recursive {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

func (*StorageStatRequest) number() protowire.Number { return numStorageStatRequest }
func (r *StorageStatRequest) marshal() []byte        { return appendString(nil, 1, r.Path) }

func (*StorageStatResponse) number() protowire.Number { return numStorageStatResponse }
func (r *StorageStatResponse) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, r.File.marshal())
	return b
}

func (*AppStartRequest) number() protowire.Number { return numAppStartRequest }
func (r *AppStartRequest) marshal() []byte {
	b := appendString(nil, 1, r.Name)
	b = appendString(b, 2, r.Args)
	return b
}

func (*PlayAlertRequest) number() protowire.Number { return numPlayAlertRequest }
func (*PlayAlertRequest) marshal() []byte          { return nil }

func (*SetDateTimeRequest) number() protowire.Number { return numSetDateTimeRequest }
func (r *SetDateTimeRequest) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, r.DateTime.marshal())
	return b
}

// --- sub-messages ---

func (f *File) marshal() []byte {
	var b []byte
	if f.Type != FileTypeFile {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(f.Type))
	}
	b = appendString(b, 2, f.Name)
	if f.Size != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(f.Size))
	}
	if len(f.Data) > 0 {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Data)
	}
	return b
}

func unmarshalFile(b []byte) (File, error) {
	var f File
	err := eachField("file", b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		switch num {
		case 1:
			f.Type = FileType(u)
		case 2:
			f.Name = string(v)
		case 3:
			f.Size = uint32(u)
		case 4:
			f.Data = append([]byte(nil), v...)
		}
		return nil
	})
	return f, err
}

func (c *FileChunk) marshal() []byte {
	var b []byte
	if c.Offset != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, c.Offset)
	}
	if len(c.Data) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, c.Data)
	}
	if c.Eof {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

func unmarshalFileChunk(b []byte) (FileChunk, error) {
	var c FileChunk
	err := eachField("file_chunk", b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		switch num {
		case 1:
			c.Offset = u
		case 2:
			c.Data = append([]byte(nil), v...)
		case 3:
			c.Eof = u != 0
		}
		return nil
	})
	return c, err
}

func (d *DateTime) marshal() []byte {
	var b []byte
	for i, v := range [...]uint32{d.Hour, d.Minute, d.Second, d.Day, d.Month, d.Year, d.Weekday} {
		if v == 0 {
			continue
		}
		b = protowire.AppendTag(b, protowire.Number(i+1), protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}
	return b
}

func unmarshalDateTime(b []byte) (DateTime, error) {
	var d DateTime
	fields := [...]*uint32{&d.Hour, &d.Minute, &d.Second, &d.Day, &d.Month, &d.Year, &d.Weekday}
	err := eachField("datetime", b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		if num >= 1 && int(num) <= len(fields) {
			*fields[num-1] = uint32(u)
		}
		return nil
	})
	return d, err
}

func unmarshalStorageListResponse(b []byte) (Content, error) {
	r := &StorageListResponse{}
	err := eachField("storage_list_response", b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		if num == 1 {
			f, err := unmarshalFile(v)
			if err != nil {
				return err
			}
			r.Files = append(r.Files, f)
		}
		return nil
	})
	return r, err
}

func unmarshalStorageReadResponse(b []byte) (Content, error) {
	r := &StorageReadResponse{}
	err := eachField("storage_read_response", b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		if num == 1 {
			c, err := unmarshalFileChunk(v)
			if err != nil {
				return err
			}
			r.Chunk = c
		}
		return nil
	})
	return r, err
}

func unmarshalStorageWriteRequest(b []byte) (Content, error) {
	r := &StorageWriteRequest{}
	err := eachField("storage_write_request", b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		switch num {
		case 1:
			r.Path = string(v)
		case 2:
			c, err := unmarshalFileChunk(v)
			if err != nil {
				return err
			}
			r.Chunk = c
		}
		return nil
	})
	return r, err
}

func unmarshalStorageDeleteRequest(b []byte) (Content, error) {
	r := &StorageDeleteRequest{}
	err := eachField("storage_delete_request", b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		switch num {
		case 1:
			r.Path = string(v)
		case 2:
			r.Recursive = u != 0
		}
		return nil
	})
	return r, err
}

func unmarshalAppStartRequest(b []byte) (Content, error) {
	r := &AppStartRequest{}
	err := eachField("app_start_request", b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		switch num {
		case 1:
			r.Name = string(v)
		case 2:
			r.Args = string(v)
		}
		return nil
	})
	return r, err
}

func unmarshalStorageStatResponse(b []byte) (Content, error) {
	r := &StorageStatResponse{}
	err := eachField("storage_stat_response", b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		if num == 1 {
			f, err := unmarshalFile(v)
			if err != nil {
				return err
			}
			r.File = f
		}
		return nil
	})
	return r, err
}

func unmarshalSetDateTimeRequest(b []byte) (Content, error) {
	r := &SetDateTimeRequest{}
	err := eachField("set_datetime_request", b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		if num == 1 {
			d, err := unmarshalDateTime(v)
			if err != nil {
				return err
			}
			r.DateTime = d
		}
		return nil
	})
	return r, err
}

func unmarshalPathOnly(what string, b []byte) (string, error) {
	var path string
	err := eachField(what, b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		if num == 1 {
			path = string(v)
		}
		return nil
	})
	return path, err
}

// eachField walks one message's fields, handing bytes fields through v
// and varint fields through u. Other wire types are skipped.
func eachField(what string, b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("protocol: %s: bad tag: %w", what, protowire.ParseError(n))
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			u, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("protocol: %s: field %d: %w", what, num, protowire.ParseError(n))
			}
			if err := fn(num, typ, nil, u); err != nil {
				return err
			}
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("protocol: %s: field %d: %w", what, num, protowire.ParseError(n))
			}
			if err := fn(num, typ, v, 0); err != nil {
				return err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("protocol: %s: field %d: %w", what, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}
