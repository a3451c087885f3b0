package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the mapping for photo documents. Free text uses the English
// analyzer; tags and object labels are matched as whole keywords.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	descFieldMapping := bleve.NewTextFieldMapping()
	descFieldMapping.Analyzer = en.AnalyzerName
	descFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("description", descFieldMapping)

	altFieldMapping := bleve.NewTextFieldMapping()
	altFieldMapping.Analyzer = en.AnalyzerName
	altFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("alt_text", altFieldMapping)

	tagsFieldMapping := bleve.NewTextFieldMapping()
	tagsFieldMapping.Analyzer = keyword.Name
	tagsFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("tags", tagsFieldMapping)

	objectsFieldMapping := bleve.NewTextFieldMapping()
	objectsFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("objects", objectsFieldMapping)

	typeFieldMapping := bleve.NewTextFieldMapping()
	typeFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("type", typeFieldMapping)

	authorFieldMapping := bleve.NewTextFieldMapping()
	authorFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("author_id", authorFieldMapping)

	createdFieldMapping := bleve.NewDateTimeFieldMapping()
	createdFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("created_at", createdFieldMapping)

	indexMapping.AddDocumentMapping("photo", docMapping)
	indexMapping.DefaultMapping = docMapping
	indexMapping.TypeField = "type"

	return indexMapping
}
