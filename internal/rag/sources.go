package rag

type Source struct {
	DocumentID string `json:"documentId"`
	FileName   string `json:"fileName"`
	Page       int    `json:"page"`
	Source     string `json:"source"`
}

type sourceKey struct {
	documentID string
	page       int
	source     string
}

// ExtractSources lists each (document, page, source) once, in first-seen order.
func ExtractSources(fragments []Fragment) []Source {
	seen := make(map[sourceKey]struct{}, len(fragments))
	sources := make([]Source, 0, len(fragments))
	for _, f := range fragments {
		key := sourceKey{documentID: f.Metadata.DocumentID, page: f.Metadata.Page, source: f.Metadata.Source}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		sources = append(sources, Source{
			DocumentID: f.Metadata.DocumentID,
			FileName:   f.Metadata.FileName,
			Page:       f.Metadata.Page,
			Source:     f.Metadata.Source,
		})
	}
	return sources
}
