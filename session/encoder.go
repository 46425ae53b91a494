package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// CurrentSchemaVersion is the first byte of every encoded session.
const CurrentSchemaVersion = 1

var errFieldTooLong = errors.New("session field too long")

func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(1 + 2 + len(s.UserID) + len(s.Authenticator) + 32 + 16)

	buf.WriteByte(CurrentSchemaVersion)

	for _, field := range []string{s.UserID, s.Authenticator} {
		if len(field) > 255 {
			return nil, errFieldTooLong
		}
		buf.WriteByte(byte(len(field)))
		buf.WriteString(field)
	}

	buf.Write(s.IPHash[:])

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != CurrentSchemaVersion {
		return nil, fmt.Errorf("unsupported session schema version %d", version)
	}

	s := &Session{}

	if s.UserID, err = readShortString(reader); err != nil {
		return nil, err
	}
	if s.Authenticator, err = readShortString(reader); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, s.IPHash[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing session bytes")
	}

	return s, nil
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
