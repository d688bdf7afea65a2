// Package protocol implements the Flipper RPC wire format: a varint
// length-delimited protobuf envelope (Main) carrying one oneof content
// variant per frame. The schema is a frozen contract with the peripheral
// firmware; the handful of messages this tool needs are encoded by hand
// with protowire rather than generated code.
package protocol

import "google.golang.org/protobuf/encoding/protowire"

// CommandStatus is the peripheral's per-command result code.
type CommandStatus int32

const (
	StatusOK CommandStatus = 0

	StatusError               CommandStatus = 1
	StatusErrorDecode         CommandStatus = 2
	StatusErrorNotImplemented CommandStatus = 3
	StatusErrorBusy           CommandStatus = 4

	StatusErrorStorageNotReady         CommandStatus = 5
	StatusErrorStorageExist            CommandStatus = 6
	StatusErrorStorageNotExist         CommandStatus = 7
	StatusErrorStorageInvalidParameter CommandStatus = 8
	StatusErrorStorageDenied           CommandStatus = 9
	StatusErrorStorageInvalidName      CommandStatus = 10
	StatusErrorStorageInternal         CommandStatus = 11
	StatusErrorStorageNotImplemented   CommandStatus = 12
	StatusErrorStorageAlreadyOpen      CommandStatus = 13

	StatusErrorContinuousCommandInterrupted CommandStatus = 14
	StatusErrorInvalidParameters            CommandStatus = 15

	StatusErrorAppCantStart    CommandStatus = 16
	StatusErrorAppSystemLocked CommandStatus = 17
)

func (s CommandStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusErrorDecode:
		return "ERROR_DECODE"
	case StatusErrorNotImplemented:
		return "ERROR_NOT_IMPLEMENTED"
	case StatusErrorBusy:
		return "ERROR_BUSY"
	case StatusErrorStorageNotReady:
		return "ERROR_STORAGE_NOT_READY"
	case StatusErrorStorageExist:
		return "ERROR_STORAGE_EXIST"
	case StatusErrorStorageNotExist:
		return "ERROR_STORAGE_NOT_EXIST"
	case StatusErrorStorageInvalidParameter:
		return "ERROR_STORAGE_INVALID_PARAMETER"
	case StatusErrorStorageDenied:
		return "ERROR_STORAGE_DENIED"
	case StatusErrorStorageInvalidName:
		return "ERROR_STORAGE_INVALID_NAME"
	case StatusErrorStorageInternal:
		return "ERROR_STORAGE_INTERNAL"
	case StatusErrorStorageNotImplemented:
		return "ERROR_STORAGE_NOT_IMPLEMENTED"
	case StatusErrorStorageAlreadyOpen:
		return "ERROR_STORAGE_ALREADY_OPEN"
	case StatusErrorContinuousCommandInterrupted:
		return "ERROR_CONTINUOUS_COMMAND_INTERRUPTED"
	case StatusErrorInvalidParameters:
		return "ERROR_INVALID_PARAMETERS"
	case StatusErrorAppCantStart:
		return "ERROR_APP_CANT_START"
	case StatusErrorAppSystemLocked:
		return "ERROR_APP_SYSTEM_LOCKED"
	}
	return "ERROR_UNKNOWN"
}

// FileType distinguishes directory entries.
type FileType int32

const (
	FileTypeFile FileType = 0
	FileTypeDir  FileType = 1
)

// Main is the RPC envelope. Every frame on the wire is exactly one Main.
//
// Field numbers (contract with the firmware):
//
//	1 command_id, 2 command_status, 3 has_next, oneof content:
//	5 empty, 7/8 storage list req/resp, 9/10 storage read req/resp,
//	11 storage write request, 12 storage delete request,
//	16 app start request, 24/25 storage stat req/resp,
//	32 play audiovisual alert request, 33 set datetime request.
type Main struct {
	CommandID uint32
	Status    CommandStatus
	HasNext   bool
	Content   Content
}

// Content is one oneof variant of the Main envelope.
type Content interface {
	number() protowire.Number
	marshal() []byte
}

// Empty is the contentless variant, used for acks and for the
// peripheral's "nothing here" replies (e.g. stat on a missing path).
type Empty struct{}

// File is a storage object description: a directory entry, a stat
// result, or (for read responses) a named container of chunk data.
type File struct {
	Type FileType
	Name string
	Size uint32
	Data []byte
}

// FileChunk is one bounded slice of a larger transfer: its absolute
// offset in the stream, the bytes, and an end-of-file marker on the
// final chunk.
type FileChunk struct {
	Offset uint64
	Data   []byte
	Eof    bool
}

// StorageListRequest asks for the entries of a directory.
type StorageListRequest struct {
	Path string
}

// StorageListResponse carries directory entries in peripheral order.
type StorageListResponse struct {
	Files []File
}

// StorageReadRequest starts a streaming download of a file.
type StorageReadRequest struct {
	Path string
}

// StorageReadResponse is one chunk of a streaming download.
type StorageReadResponse struct {
	Chunk FileChunk
}

// StorageWriteRequest writes one chunk at an explicit offset. The Eof
// flag on the final chunk tells the peripheral to close the file.
type StorageWriteRequest struct {
	Path  string
	Chunk FileChunk
}

// StorageDeleteRequest removes a file, or a directory when Recursive.
type StorageDeleteRequest struct {
	Path      string
	Recursive bool
}

// StorageStatRequest asks for the metadata of a single path.
type StorageStatRequest struct {
	Path string
}

// StorageStatResponse returns the stat result.
type StorageStatResponse struct {
	File File
}

// AppStartRequest launches an app by full path or builtin name.
type AppStartRequest struct {
	Name string
	Args string
}

// PlayAlertRequest triggers the audiovisual locate alert.
type PlayAlertRequest struct{}

// DateTime mirrors the peripheral RTC layout. Weekday is Monday=1
// through Sunday=7, the STM32 RTC convention.
type DateTime struct {
	Hour    uint32
	Minute  uint32
	Second  uint32
	Day     uint32
	Month   uint32
	Year    uint32
	Weekday uint32
}

// SetDateTimeRequest sets the peripheral clock.
type SetDateTimeRequest struct {
	DateTime DateTime
}
