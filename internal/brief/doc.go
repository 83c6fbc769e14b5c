// Package brief turns a week of newsletters into a Markdown brief.
//
// Generation runs in stages: compute the coverage window, load team context
// and the bullets of previous briefs, fetch newsletters, and, when there are
// more than the configured threshold, ask the model for a cheap relevance
// ranking before the expensive analysis pass. Briefs are archived as
// <dir>/<YYYY-MM-DD>-weekly.md.
package brief
