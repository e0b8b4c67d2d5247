package model

import "strings"

// idSeparator joins the components of layer and event ids. Layer ids are
// `{source_id}:{provider_layer_id}`, event ids add the provider event id.
const idSeparator = ":"

// sourceIDSeparator joins a provider name with a provider account id.
const sourceIDSeparator = "-"

// MergeIDs joins id components in order. Splitting the result with
// SplitMergedID recovers exactly the original components as long as none of
// them contains the separator.
func MergeIDs(parts ...string) string {
	return strings.Join(parts, idSeparator)
}

// SplitMergedID splits a merged id back into its components.
func SplitMergedID(mergedID string) []string {
	return strings.Split(mergedID, idSeparator)
}

// SourceID builds the globally unique id of a source from the provider name
// and the provider-side account id.
func SourceID(providerName, providerAccountID string) string {
	return providerName + sourceIDSeparator + providerAccountID
}

// SplitSourceID recovers the provider name and provider account id from a
// source id. ok is false when the id is not of the `{provider}-{account}`
// form. Only the first separator splits: account ids may contain dashes.
func SplitSourceID(sourceID string) (providerName, providerAccountID string, ok bool) {
	i := strings.Index(sourceID, sourceIDSeparator)
	if i <= 0 || i == len(sourceID)-1 {
		return "", "", false
	}
	return sourceID[:i], sourceID[i+1:], true
}
