// Package batch manages the path layout and generic reader/writer for the
// three kinds of batch this facilitator handles: ingestion, validation, and
// sum part. Each batch is three objects under one Transport: a header, a
// detached signature over the header's exact bytes, and an Avro packet
// file, bound together by the header's packet_file_digest field.
package batch

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// dateFormat is the year/month/day/hour/minute layout used to build the
// date-keyed path component shared by ingestion and validation batches.
const dateFormat = "2006/01/02/15/04"

// Locator names the three object keys that make up one batch.
type Locator struct {
	HeaderKey     string
	SignatureKey  string
	PacketFileKey string
}

// NewIngestionLocator builds the locator for an ingestion batch: the keys
// {aggregationName}/{date}/{batchID}.batch, .batch.sig and .batch.avro.
func NewIngestionLocator(aggregationName string, batchID uuid.UUID, date time.Time) Locator {
	return newLocator(aggregationName, batchID, date, "batch")
}

// NewValidationLocator builds the locator for a validation batch: the same
// prefix as the ingestion batch with suffix "validity_0" when isFirst is
// true and "validity_1" otherwise (plus their .sig/.avro siblings). The
// suffix names the processor that wrote the batch; an own copy and a peer
// copy written by the same processor share it.
func NewValidationLocator(aggregationName string, batchID uuid.UUID, date time.Time, isFirst bool) Locator {
	return newLocator(aggregationName, batchID, date, validityFilename(isFirst))
}

func validityFilename(isFirst bool) string {
	if isFirst {
		return "validity_0"
	}
	return "validity_1"
}

func newLocator(aggregationName string, batchID uuid.UUID, date time.Time, filename string) Locator {
	prefix := fmt.Sprintf("%s/%s/%s", aggregationName, date.UTC().Format(dateFormat), batchID.String())
	return Locator{
		HeaderKey:     prefix + "." + filename,
		SignatureKey:  prefix + "." + filename + ".sig",
		PacketFileKey: prefix + "." + filename + ".avro",
	}
}

// NewSumLocator builds the locator for a sum-part batch: the keys
// {aggregationName}/{start}-{end}.sum_{0,1} and .sum_{0,1}.sig, with
// {aggregationName}/{start}-{end}.invalid_uuid_{0,1}.avro as the packet
// file.
func NewSumLocator(aggregationName string, aggregationStart, aggregationEnd time.Time, isFirst bool) Locator {
	prefix := fmt.Sprintf("%s/%s-%s", aggregationName,
		aggregationStart.UTC().Format(dateFormat), aggregationEnd.UTC().Format(dateFormat))
	index := "0"
	if !isFirst {
		index = "1"
	}
	return Locator{
		HeaderKey:     prefix + ".sum_" + index,
		SignatureKey:  prefix + ".sum_" + index + ".sig",
		PacketFileKey: prefix + ".invalid_uuid_" + index + ".avro",
	}
}
