package assembly

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"accession/internal/ingest"
	"accession/internal/logging"
	"accession/internal/queue"
	"accession/internal/repository"
	"accession/internal/services"
	"accession/internal/services/metadata"
	"accession/internal/services/storage"
)

// Processor resolves where the processor stored a dissemination package.
type Processor interface {
	DIPPath(ctx context.Context, sipUUID string) (string, error)
}

// Storage reads the stored dissemination package.
type Storage interface {
	METS(ctx context.Context, sipUUID, dipPath string) ([]byte, error)
	ObjectManifest(ctx context.Context, uuid, dipPath, file string) (storage.Manifest, bool, error)
	ObjectInfo(ctx context.Context, uuid, dipPath, file string) (storage.ObjectInfo, error)
	ManifestSuffix() string
}

// Metadata fetches descriptive records.
type Metadata interface {
	Fetch(ctx context.Context, uri string) (*metadata.Record, error)
}

// Transcripts looks up transcriptions by call number. A nil transcript with a
// nil error means none exists.
type Transcripts interface {
	TranscriptFor(ctx context.Context, callNumber string) (*repository.Transcript, error)
}

// MasterOrder is the part order that designates the master file.
const MasterOrder = "1"

// Assembler implements ingest.Assembler.
type Assembler struct {
	processor   Processor
	storage     Storage
	metadata    Metadata
	transcripts Transcripts
	logger      *slog.Logger
}

// New constructs an assembler. transcripts may be nil.
func New(proc Processor, store Storage, meta Metadata, transcripts Transcripts, logger *slog.Logger) *Assembler {
	return &Assembler{
		processor:   proc,
		storage:     store,
		metadata:    meta,
		transcripts: transcripts,
		logger:      logging.NewComponentLogger(logger, "assembly"),
	}
}

// Assemble gathers the package's metadata, persisting each piece on the
// record as it is resolved, and advances the run to METADATA_ASSEMBLED.
func (a *Assembler) Assemble(ctx context.Context, run *ingest.Run) (*ingest.Assembly, error) {
	ctx = services.WithStage(ctx, "assembly")

	if strings.TrimSpace(run.DIPPath) == "" {
		dip, err := a.processor.DIPPath(ctx, run.SIPUUID)
		if err != nil {
			return nil, ingest.Reason("Unable to locate dissemination package", err)
		}
		run.DIPPath = dip
		run.Note(ctx, queue.Fields{queue.ColDIPPath: dip})
	}

	mets, err := a.storage.METS(ctx, run.SIPUUID, run.DIPPath)
	if err != nil {
		return nil, ingest.Reason("Unable to read structural manifest", err)
	}
	files, err := ParseMETS(mets, run.DIPPath)
	if err != nil {
		return nil, ingest.Reason("Unable to read structural manifest", err)
	}

	desc, err := a.metadata.Fetch(ctx, run.MetadataURI)
	if err != nil {
		return nil, ingest.Reason("Unable to fetch descriptive record", err)
	}
	if err := ValidateDescriptive(desc); err != nil {
		return nil, ingest.Reason("Descriptive record is incomplete", err)
	}

	parts, err := MapParts(desc, files, run.DIPPath)
	if err != nil {
		return nil, ingest.Reason("Descriptive parts do not match package files", err)
	}
	run.Note(ctx, queue.Fields{queue.ColObjectParts: parts})

	master, err := a.resolveMaster(ctx, run.DIPPath, parts)
	if err != nil {
		return nil, err
	}
	run.Note(ctx, queue.Fields{queue.ColMasterData: master})

	transcript, err := a.lookupTranscript(ctx, run, desc.CallNumber())
	if err != nil {
		return nil, err
	}
	if transcript != nil {
		run.Note(ctx, queue.Fields{queue.ColTranscriptData: transcript})
	}

	logging.WithContext(run.Context(ctx), a.logger).Info("metadata assembled",
		logging.Event("metadata_assembled"),
		logging.Int("files", len(files)),
		logging.Int("parts", len(parts)),
		logging.String("master", master.File),
		logging.Bool("chunked", master.Chunked),
		logging.Bool("transcript", transcript != nil),
	)
	run.Advance(ctx, queue.StatusMetadataAssembled, nil)
	return &ingest.Assembly{
		Descriptive: desc,
		Files:       files,
		Parts:       parts,
		Master:      master,
		Transcript:  transcript,
	}, nil
}

// ValidateDescriptive reports every missing field the finalizer depends on.
func ValidateDescriptive(desc *metadata.Record) error {
	problems := &services.ValidationErrors{Subject: "descriptive record"}
	if desc == nil {
		problems.Add("record missing")
		return problems.Err()
	}
	problems.Subject = "descriptive record " + desc.URI
	if strings.TrimSpace(desc.Title) == "" {
		problems.Add("missing title")
	}
	if desc.CallNumber() == "" {
		problems.Add("missing local identifier")
	}
	if len(desc.Parts) == 0 {
		problems.Add("missing parts")
	}
	for i, part := range desc.Parts {
		if strings.TrimSpace(part.Title) == "" {
			problems.Add("part %d missing title", i+1)
		}
	}
	return problems.Err()
}

// MapParts matches descriptive parts, in order, to the package files named by
// their titles.
func MapParts(desc *metadata.Record, files []ingest.FileEntry, dipPath string) ([]ingest.ObjectPart, error) {
	byName := lo.SliceToMap(files, func(f ingest.FileEntry) (string, ingest.FileEntry) {
		return f.File, f
	})
	problems := &services.ValidationErrors{Subject: "object parts"}
	parts := make([]ingest.ObjectPart, 0, len(desc.Parts))
	for _, part := range desc.SortedParts() {
		title := strings.TrimSpace(part.Title)
		file, ok := byName[title]
		if !ok {
			problems.Add("no package file named %q", title)
			continue
		}
		parts = append(parts, ingest.ObjectPart{
			Title:     title,
			Order:     strings.TrimSpace(part.Order),
			Type:      part.Type,
			Caption:   part.Caption,
			UUID:      file.UUID,
			MimeType:  file.MimeType,
			Object:    storage.ObjectKey(dipPath, file.UUID, file.File),
			Thumbnail: storage.ThumbnailKey(dipPath, file.UUID),
		})
	}
	if err := problems.Err(); err != nil {
		return nil, err
	}
	return parts, nil
}

// MasterPart returns the part designated as master.
func MasterPart(parts []ingest.ObjectPart) (ingest.ObjectPart, bool) {
	return lo.Find(parts, func(p ingest.ObjectPart) bool { return p.Order == MasterOrder })
}

func (a *Assembler) resolveMaster(ctx context.Context, dipPath string, parts []ingest.ObjectPart) (ingest.Master, error) {
	part, ok := MasterPart(parts)
	if !ok {
		return ingest.Master{}, ingest.Reason("Descriptive record has no master part",
			services.Wrap(services.ErrDataIntegrity, "assembly", "resolve master", "no part with order "+MasterOrder, nil))
	}
	master := ingest.Master{
		UUID:      part.UUID,
		File:      part.Title,
		Object:    part.Object,
		Thumbnail: part.Thumbnail,
		MimeType:  part.MimeType,
	}

	manifest, chunked, err := a.storage.ObjectManifest(ctx, part.UUID, dipPath, part.Title)
	if err != nil {
		return ingest.Master{}, ingest.Reason("Unable to read master fixity", err)
	}
	if chunked {
		suffix := a.storage.ManifestSuffix()
		master.File += suffix
		master.Object += suffix
		master.Checksum = manifest.MD5
		master.Size = manifest.Size
		master.Chunked = true
		if master.MimeType == "" {
			master.MimeType = manifest.MimeType
		}
		return master, nil
	}

	info, err := a.storage.ObjectInfo(ctx, part.UUID, dipPath, part.Title)
	if err != nil {
		return ingest.Master{}, ingest.Reason("Unable to read master fixity", err)
	}
	master.Checksum = info.MD5
	master.Size = info.Length
	return master, nil
}

func (a *Assembler) lookupTranscript(ctx context.Context, run *ingest.Run, callNumber string) (*ingest.Transcript, error) {
	if a.transcripts == nil || callNumber == "" {
		return nil, nil
	}
	found, err := a.transcripts.TranscriptFor(ctx, callNumber)
	if err != nil {
		return nil, ingest.Reason("Unable to look up transcript", err)
	}
	if found == nil {
		run.Logger().Debug("no transcript for object", logging.String("call_number", callNumber))
		return nil, nil
	}
	body := json.RawMessage(found.Transcript)
	if !json.Valid(body) {
		encoded, err := json.Marshal(found.Transcript)
		if err != nil {
			return nil, services.Wrap(services.ErrDataIntegrity, "assembly", "encode transcript", callNumber, err)
		}
		body = encoded
	}
	return &ingest.Transcript{
		CallNumber: callNumber,
		Transcript: body,
		SearchText: found.SearchText,
	}, nil
}
