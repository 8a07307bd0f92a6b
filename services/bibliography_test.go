package services

import (
	"testing"

	"paper-auditor/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBibTeX = `
@string{jai = "Journal of AI"}

@article{smith2020,
  title   = {Deep {L}earning for Citation Analysis},
  author  = {Smith, John and Müller, Anna and others},
  journal = {Journal of AI},
  year    = {2020},
  volume  = 12,
  pages   = {45--67},
  doi     = {10.1000/XYZ123},
}

@misc{vaswani2017,
  title         = "Attention Is All You Need",
  author        = "Ashish Vaswani and Noam Shazeer",
  eprint        = {1706.03762},
  archivePrefix = {arXiv},
  year          = 2017
}
`

func TestParseBibTeX(t *testing.T) {
	refs, err := ParseBibTeX(sampleBibTeX)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	smith := refs[0]
	assert.Equal(t, "smith2020", smith.Key)
	assert.Equal(t, "Deep Learning for Citation Analysis", smith.Metadata.Title)
	assert.Equal(t, []string{"Smith", "Müller"}, smith.Metadata.Authors)
	assert.Equal(t, 2020, smith.Metadata.Year)
	assert.Equal(t, "Journal of AI", smith.Metadata.Journal)
	assert.Equal(t, "12", smith.Metadata.Volume)
	assert.Equal(t, "45-67", smith.Metadata.Pages)
	assert.Equal(t, "10.1000/xyz123", smith.Metadata.DOI)
	assert.Contains(t, smith.RawText, "Deep Learning for Citation Analysis")

	vaswani := refs[1]
	assert.Equal(t, "vaswani2017", vaswani.Key)
	assert.Equal(t, []string{"Vaswani", "Shazeer"}, vaswani.Metadata.Authors)
	assert.Equal(t, "1706.03762", vaswani.Metadata.ArXivID)
	assert.Equal(t, 2017, vaswani.Metadata.Year)
}

func TestParseBibTeXUnterminated(t *testing.T) {
	_, err := ParseBibTeX("@article{broken, title = {No end}")
	assert.Error(t, err)
}

func TestParseCSLJSON(t *testing.T) {
	data := []byte(`[
	  {"id": "lecun2015", "title": "Deep learning", "author": [{"family": "LeCun", "given": "Yann"}, {"literal": "Geoffrey Hinton"}],
	   "issued": {"date-parts": [[2015, 5]]}, "container-title": "Nature", "volume": "521", "page": "436-444",
	   "DOI": "https://doi.org/10.1038/nature14539"},
	  {"title": "Untitled preprint", "URL": "https://arxiv.org/abs/2101.00001v2"}
	]`)
	refs, err := ParseBibliography(data, FormatCSLJSON)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, "lecun2015", refs[0].Key)
	assert.Equal(t, []string{"LeCun", "Hinton"}, refs[0].Metadata.Authors)
	assert.Equal(t, 2015, refs[0].Metadata.Year)
	assert.Equal(t, "10.1038/nature14539", refs[0].Metadata.DOI)
	assert.Equal(t, "521", refs[0].Metadata.Volume)

	assert.Equal(t, "item2", refs[1].Key)
	assert.Equal(t, "2101.00001", refs[1].Metadata.ArXivID)
}

func TestParseBibliographyRejectsUnknownFormat(t *testing.T) {
	_, err := ParseBibliography([]byte("x"), "ris")
	assert.Error(t, err)
}

func TestFormatReference(t *testing.T) {
	got := FormatReference(models.CitationMetadata{
		Title: "Deep learning", Authors: []string{"LeCun", "Hinton"}, Year: 2015,
		Journal: "Nature", DOI: "10.1038/nature14539",
	})
	assert.Equal(t, "LeCun, Hinton (2015). Deep learning. Nature. doi:10.1038/nature14539", got)
	assert.Equal(t, "Unknown Authors (n.d.). Untitled.", FormatReference(models.CitationMetadata{}))
}
