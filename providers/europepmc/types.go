// Package europepmc searches Europe PMC by DOI, PMID, title and author+year.
package europepmc

import "strconv"

// SearchResponse is the top-level structure of the Europe PMC search answer.
type SearchResponse struct {
	HitCount   int `json:"hitCount"`
	ResultList struct {
		Result []Article `json:"result"`
	} `json:"resultList"`
}

// Article is a single article of the search answer.
type Article struct {
	ID                   string `json:"id"`
	Source               string `json:"source"`
	PMID                 string `json:"pmid"`
	DOI                  string `json:"doi"`
	Title                string `json:"title"`
	AuthorString         string `json:"authorString"`
	JournalTitle         string `json:"journalTitle"`
	PubYear              string `json:"pubYear"`
	FirstPublicationDate string `json:"firstPublicationDate"`
	AbstractText         string `json:"abstractText"`
	JournalInfo          struct {
		Journal struct {
			Title string `json:"title"`
		} `json:"journal"`
	} `json:"journalInfo"`
}

// year parses pubYear, falling back to the first publication date.
func (a *Article) year() int {
	if y, err := strconv.Atoi(a.PubYear); err == nil {
		return y
	}
	if len(a.FirstPublicationDate) >= 4 {
		if y, err := strconv.Atoi(a.FirstPublicationDate[:4]); err == nil {
			return y
		}
	}
	return 0
}
