package batch

import (
	"io"

	"github.com/divviup/prio-server-sub000/internal/idl"
)

// Codec supplies the per-kind operations Reader/Writer need but cannot get
// from a type parameter alone: Go generics carry no static "class methods",
// so the read/open/decode functions for one kind of header and packet are
// instead supplied explicitly, once, as package-level values below.
type Codec[H idl.Header, P idl.Packet] struct {
	ReadHeader       func(io.Reader) (H, error)
	OpenPacketWriter func(io.Writer) (*idl.PacketFileWriter, error)
	OpenPacketReader func(io.Reader) (*idl.PacketFileReader, error)
	NextPacket       func(*idl.PacketFileReader) (P, error)
}

// IngestionCodec is the Codec for ingestion batches.
var IngestionCodec = Codec[*idl.IngestionHeader, *idl.IngestionDataSharePacket]{
	ReadHeader:       idl.ReadIngestionHeader,
	OpenPacketWriter: idl.NewIngestionDataSharePacketWriter,
	OpenPacketReader: idl.NewIngestionDataSharePacketReader,
	NextPacket:       (*idl.PacketFileReader).NextIngestionDataSharePacket,
}

// ValidationCodec is the Codec for validation batches.
var ValidationCodec = Codec[*idl.ValidationHeader, *idl.ValidationPacket]{
	ReadHeader:       idl.ReadValidationHeader,
	OpenPacketWriter: idl.NewValidationPacketWriter,
	OpenPacketReader: idl.NewValidationPacketReader,
	NextPacket:       (*idl.PacketFileReader).NextValidationPacket,
}

// SumCodec is the Codec for sum-part batches, whose packet file holds
// invalid-packet markers rather than validation data.
var SumCodec = Codec[*idl.SumPartHeader, *idl.InvalidPacket]{
	ReadHeader:       idl.ReadSumPartHeader,
	OpenPacketWriter: idl.NewInvalidPacketWriter,
	OpenPacketReader: idl.NewInvalidPacketReader,
	NextPacket:       (*idl.PacketFileReader).NextInvalidPacket,
}
