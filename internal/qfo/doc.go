// Package qfo tracks queue family ownership (QFO) transfers.
//
// A transfer is a release barrier recorded on a queue of the source family
// followed by a matching acquire barrier recorded on a queue of the
// destination family. Transfers classifies barriers as they are recorded into
// one command buffer. Registry is the device-wide map from resource handle to
// the releases that have been submitted but not yet acquired.
package qfo
