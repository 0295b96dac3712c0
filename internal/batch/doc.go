// Package batch runs upload batches through cleansing and into the fact
// tables.
//
// A run loads the batch, reads its staging rows, cleanses them, records one
// DQ issue per problem found and loads the accepted records. The batch row
// ends in completed with a summary, or failed with the error message.
// Concurrent runs of the same batch id share one execution.
package batch
