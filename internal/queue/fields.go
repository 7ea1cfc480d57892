package queue

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Column names a queue_records column usable in matches, patches, and ordering.
type Column string

const (
	ColID             Column = "id"
	ColBatch          Column = "batch"
	ColPackage        Column = "package"
	ColStatus         Column = "status"
	ColTerminal       Column = "terminal"
	ColOutcome        Column = "outcome"
	ColError          Column = "error"
	ColCollectionUUID Column = "collection_uuid"
	ColCollectionURI  Column = "collection_uri"
	ColObjectUUID     Column = "object_uuid"
	ColMetadataURI    Column = "metadata_uri"
	ColBatchSize      Column = "batch_size"
	ColFileCount      Column = "file_count"
	ColTransferFolder Column = "transfer_folder"
	ColTransferUUID   Column = "transfer_uuid"
	ColSIPUUID        Column = "sip_uuid"
	ColDIPPath        Column = "dip_path"
	ColMicroService   Column = "micro_service"
	ColMasterData     Column = "master_data"
	ColObjectParts    Column = "object_parts"
	ColTranscriptData Column = "transcript_data"
	ColIndexRecord    Column = "index_record"
	ColCreatedAt      Column = "created_at"
	ColUpdatedAt      Column = "updated_at"
)

type columnKind int

const (
	kindText columnKind = iota
	kindInt
	kindBool
	kindJSON
	kindReadOnly
)

var columnKinds = map[Column]columnKind{
	ColID:             kindReadOnly,
	ColBatch:          kindText,
	ColPackage:        kindText,
	ColStatus:         kindText,
	ColTerminal:       kindBool,
	ColOutcome:        kindText,
	ColError:          kindText,
	ColCollectionUUID: kindText,
	ColCollectionURI:  kindText,
	ColObjectUUID:     kindText,
	ColMetadataURI:    kindText,
	ColBatchSize:      kindText,
	ColFileCount:      kindInt,
	ColTransferFolder: kindText,
	ColTransferUUID:   kindText,
	ColSIPUUID:        kindText,
	ColDIPPath:        kindText,
	ColMicroService:   kindText,
	ColMasterData:     kindJSON,
	ColObjectParts:    kindJSON,
	ColTranscriptData: kindJSON,
	ColIndexRecord:    kindJSON,
	ColCreatedAt:      kindReadOnly,
	ColUpdatedAt:      kindReadOnly,
}

const recordColumns = "id, batch, package, status, terminal, outcome, error, collection_uuid, collection_uri, object_uuid, metadata_uri, batch_size, file_count, transfer_folder, transfer_uuid, sip_uuid, dip_path, micro_service, master_data, object_parts, transcript_data, index_record, created_at, updated_at"

// Fields is a partial set of column values. As a match every entry must hold
// (nil matches NULL); as a patch every entry is written.
type Fields map[Column]any

// Order selects the sort column for GetAll. The zero value sorts by
// enqueue time, oldest first.
type Order struct {
	Column Column
	Desc   bool
}

func (f Fields) sortedColumns() []Column {
	cols := make([]Column, 0, len(f))
	for col := range f {
		cols = append(cols, col)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i] < cols[j] })
	return cols
}

func (f Fields) where() (string, []any, error) {
	if len(f) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(f))
	args := make([]any, 0, len(f))
	for _, col := range f.sortedColumns() {
		kind, ok := columnKinds[col]
		if !ok {
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownColumn, col)
		}
		value := f[col]
		if value == nil {
			clauses = append(clauses, string(col)+" IS NULL")
			continue
		}
		converted, err := convertValue(col, kind, value)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, string(col)+" = ?")
		args = append(args, converted)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func (f Fields) set() (string, []any, error) {
	assignments := make([]string, 0, len(f)+1)
	args := make([]any, 0, len(f)+1)
	for _, col := range f.sortedColumns() {
		kind, ok := columnKinds[col]
		if !ok {
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownColumn, col)
		}
		if kind == kindReadOnly {
			return "", nil, fmt.Errorf("%w: %q is read-only", ErrUnknownColumn, col)
		}
		var converted any
		if value := f[col]; value != nil {
			var err error
			if converted, err = convertValue(col, kind, value); err != nil {
				return "", nil, err
			}
		}
		assignments = append(assignments, string(col)+" = ?")
		args = append(args, converted)
	}
	return strings.Join(assignments, ", "), args, nil
}

func (o Order) clause() (string, error) {
	if o.Column == "" {
		if o.Desc {
			return " ORDER BY created_at DESC, id DESC", nil
		}
		return " ORDER BY created_at ASC, id ASC", nil
	}
	if _, ok := columnKinds[o.Column]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, o.Column)
	}
	direction := "ASC"
	if o.Desc {
		direction = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", o.Column, direction, direction), nil
}

func convertValue(col Column, kind columnKind, value any) (any, error) {
	switch kind {
	case kindBool:
		switch v := value.(type) {
		case bool:
			return boolToInt(v), nil
		case int:
			return v, nil
		}
	case kindInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		}
	case kindJSON:
		switch v := value.(type) {
		case json.RawMessage:
			return nullableString(string(v)), nil
		case []byte:
			return nullableString(string(v)), nil
		case string:
			return nullableString(v), nil
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", col, err)
			}
			return string(data), nil
		}
	default:
		switch v := value.(type) {
		case string:
			return v, nil
		case Status:
			return string(v), nil
		case Outcome:
			return string(v), nil
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case fmt.Stringer:
			return v.String(), nil
		}
	}
	return nil, fmt.Errorf("%s: unsupported value type %T", col, value)
}
