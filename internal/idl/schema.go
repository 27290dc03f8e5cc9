// Package idl provides the Avro schemas and typed records shared by every
// batch the facilitator reads or writes: batch signatures, ingestion
// headers and packets, validation headers and packets, sum part headers and
// invalid-packet markers.
package idl

import (
	"github.com/hamba/avro/v2"
)

// Seven schemas, compiled in and parsed exactly once. Schema users should
// refer only to the package-level *avro.Schema values below; re-parsing a
// schema per call is wasted work.
var (
	batchSignatureSchema            = mustParse(batchSignatureSchemaJSON)
	ingestionHeaderSchema           = mustParse(ingestionHeaderSchemaJSON)
	ingestionDataSharePacketSchema  = mustParse(ingestionDataSharePacketSchemaJSON)
	validationHeaderSchema          = mustParse(validationHeaderSchemaJSON)
	validationPacketSchema          = mustParse(validationPacketSchemaJSON)
	sumPartSchema                   = mustParse(sumPartSchemaJSON)
	invalidPacketSchema             = mustParse(invalidPacketSchemaJSON)
)

func mustParse(s string) avro.Schema {
	schema, err := avro.Parse(s)
	if err != nil {
		panic("idl: malformed compiled-in schema: " + err.Error())
	}
	return schema
}

const batchSignatureSchemaJSON = `{
	"type": "record",
	"name": "BatchSignature",
	"namespace": "org.abetterinternet.prio.v1",
	"fields": [
		{"name": "batch_header_signature", "type": "bytes"},
		{"name": "key_identifier", "type": "string"},
		{"name": "batch_header", "type": ["null", "bytes"], "default": null},
		{"name": "packets", "type": ["null", "bytes"], "default": null}
	]
}`

const ingestionHeaderSchemaJSON = `{
	"type": "record",
	"name": "IngestionHeader",
	"namespace": "org.abetterinternet.prio.v1",
	"fields": [
		{"name": "batch_uuid", "type": "string"},
		{"name": "name", "type": "string"},
		{"name": "bins", "type": "int"},
		{"name": "epsilon", "type": "double"},
		{"name": "prime", "type": "long"},
		{"name": "number_of_servers", "type": "int"},
		{"name": "hamming_weight", "type": ["null", "int"], "default": null},
		{"name": "batch_start_time", "type": "long"},
		{"name": "batch_end_time", "type": "long"},
		{"name": "packet_file_digest", "type": "bytes"}
	]
}`

const ingestionDataSharePacketSchemaJSON = `{
	"type": "record",
	"name": "IngestionDataSharePacket",
	"namespace": "org.abetterinternet.prio.v1",
	"fields": [
		{"name": "uuid", "type": "string"},
		{"name": "encrypted_payload", "type": "bytes"},
		{"name": "encryption_key_id", "type": ["null", "string"], "default": null},
		{"name": "r_pit", "type": "long"},
		{"name": "version_configuration", "type": ["null", "string"], "default": null},
		{"name": "device_nonce", "type": ["null", "bytes"], "default": null}
	]
}`

const validationHeaderSchemaJSON = `{
	"type": "record",
	"name": "ValidationHeader",
	"namespace": "org.abetterinternet.prio.v1",
	"fields": [
		{"name": "batch_uuid", "type": "string"},
		{"name": "name", "type": "string"},
		{"name": "bins", "type": "int"},
		{"name": "epsilon", "type": "double"},
		{"name": "prime", "type": "long"},
		{"name": "number_of_servers", "type": "int"},
		{"name": "hamming_weight", "type": ["null", "int"], "default": null},
		{"name": "packet_file_digest", "type": "bytes"}
	]
}`

const validationPacketSchemaJSON = `{
	"type": "record",
	"name": "ValidationPacket",
	"namespace": "org.abetterinternet.prio.v1",
	"fields": [
		{"name": "uuid", "type": "string"},
		{"name": "f_r", "type": "long"},
		{"name": "g_r", "type": "long"},
		{"name": "h_r", "type": "long"}
	]
}`

const sumPartSchemaJSON = `{
	"type": "record",
	"name": "SumPart",
	"namespace": "org.abetterinternet.prio.v1",
	"fields": [
		{"name": "batch_uuids", "type": {"type": "array", "items": "string"}},
		{"name": "name", "type": "string"},
		{"name": "bins", "type": "int"},
		{"name": "epsilon", "type": "double"},
		{"name": "prime", "type": "long"},
		{"name": "number_of_servers", "type": "int"},
		{"name": "hamming_weight", "type": ["null", "int"], "default": null},
		{"name": "sum", "type": {"type": "array", "items": "long"}},
		{"name": "aggregation_start_time", "type": "long"},
		{"name": "aggregation_end_time", "type": "long"},
		{"name": "packet_file_digest", "type": "bytes"},
		{"name": "total_individual_clients", "type": "long"}
	]
}`

const invalidPacketSchemaJSON = `{
	"type": "record",
	"name": "InvalidPacket",
	"namespace": "org.abetterinternet.prio.v1",
	"fields": [
		{"name": "uuid", "type": "string"}
	]
}`
