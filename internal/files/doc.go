// Package files discovers the spreadsheet and CSV sources that can be
// loaded into the staging tables.
//
// Example usage:
//
//	discovery := files.NewDiscovery(paths.DataDir)
//	sources, err := discovery.FindSourceFiles("incoming/operations")
package files
