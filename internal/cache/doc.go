// Package cache keeps asset digests in Redis so repeated manifest requests
// skip downloading and hashing unchanged assets.
package cache
