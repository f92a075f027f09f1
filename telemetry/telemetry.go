package telemetry

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Sink receives fault reports. Log must never block the caller or panic.
type Sink interface {
	Log(tag, message string)
}

type nopSink struct{}

func (nopSink) Log(string, string) {}

// Nop returns a Sink that discards every report.
func Nop() Sink {
	return nopSink{}
}

// Record is one fault report as stored on disk.
type Record struct {
	Time    time.Time `cbor:"1,keyasint"`
	Tag     string    `cbor:"2,keyasint"`
	Message string    `cbor:"3,keyasint"`
}

var (
	recordEncMode cbor.EncMode
	recordDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
	recordEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create telemetry CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	recordDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create telemetry CBOR decoder mode: %v", err))
	}
}

// ReadRecords decodes every record in r until EOF.
func ReadRecords(r io.Reader) ([]Record, error) {
	dec := recordDecMode.NewDecoder(r)
	var records []Record
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				return records, nil
			}
			return records, fmt.Errorf("decode telemetry record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
}
