package qagate

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"accession/internal/services"
)

var collectionPath = regexp.MustCompile(`^[0-9]+/resources/[0-9]+$`)

// markerTokens prefix batch folder names and carry no part of the URI.
var markerTokens = map[string]struct{}{
	"new":    {},
	"ingest": {},
}

// CollectionURI derives the descriptive-metadata URI of the target collection
// from the trailing segment of a batch name: new_2-resources_7 becomes
// /repositories/2/resources/7.
func CollectionURI(batch string) (string, error) {
	name := path.Base(strings.TrimRight(strings.ReplaceAll(strings.TrimSpace(batch), "\\", "/"), "/"))
	tokens := strings.Split(name, "_")
	for len(tokens) > 0 {
		if _, marker := markerTokens[strings.ToLower(tokens[0])]; !marker {
			break
		}
		tokens = tokens[1:]
	}
	rest := strings.NewReplacer("_", "/", "-", "/").Replace(strings.Join(tokens, "_"))
	if !collectionPath.MatchString(rest) {
		return "", services.Wrap(services.ErrValidation, "qa", "collection uri",
			fmt.Sprintf("batch name %q does not name a repository resource", batch), nil)
	}
	return "/repositories/" + rest, nil
}
