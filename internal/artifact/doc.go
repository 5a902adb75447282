// Package artifact hosts the BlobStore implementations used for the crawl
// manifest, report exports and run summaries.
package artifact
