package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec            Record
		status         string
		terminal       int64
		outcome        string
		errorMessage   sql.NullString
		collectionUUID sql.NullString
		collectionURI  sql.NullString
		objectUUID     sql.NullString
		metadataURI    sql.NullString
		batchSize      sql.NullString
		fileCount      sql.NullInt64
		transferFolder sql.NullString
		transferUUID   sql.NullString
		sipUUID        sql.NullString
		dipPath        sql.NullString
		microService   sql.NullString
		masterData     sql.NullString
		objectParts    sql.NullString
		transcriptData sql.NullString
		indexRecord    sql.NullString
		createdRaw     string
		updatedRaw     string
	)

	if err := scanner.Scan(
		&rec.ID,
		&rec.Batch,
		&rec.Package,
		&status,
		&terminal,
		&outcome,
		&errorMessage,
		&collectionUUID,
		&collectionURI,
		&objectUUID,
		&metadataURI,
		&batchSize,
		&fileCount,
		&transferFolder,
		&transferUUID,
		&sipUUID,
		&dipPath,
		&microService,
		&masterData,
		&objectParts,
		&transcriptData,
		&indexRecord,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec.Status = Status(status)
	rec.Terminal = terminal != 0
	rec.Outcome = Outcome(outcome)
	rec.Error = errorMessage.String
	rec.CollectionUUID = collectionUUID.String
	rec.CollectionURI = collectionURI.String
	rec.ObjectUUID = objectUUID.String
	rec.MetadataURI = metadataURI.String
	rec.BatchSize = batchSize.String
	rec.FileCount = int(fileCount.Int64)
	rec.TransferFolder = transferFolder.String
	rec.TransferUUID = transferUUID.String
	rec.SIPUUID = sipUUID.String
	rec.DIPPath = dipPath.String
	rec.MicroService = microService.String
	rec.MasterData = rawJSON(masterData)
	rec.ObjectParts = rawJSON(objectParts)
	rec.TranscriptData = rawJSON(transcriptData)
	rec.IndexRecord = rawJSON(indexRecord)

	if created, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		rec.UpdatedAt = updated
	}
	return &rec, nil
}

func rawJSON(value sql.NullString) json.RawMessage {
	if !value.Valid || value.String == "" {
		return nil
	}
	return json.RawMessage(value.String)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
