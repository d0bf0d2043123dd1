// Package consortium connects a tenant to its consortium.
//
// A consortium is a group of tenants around one central tenant that owns shared Instances. Member
// tenants hold shadow copies of those Instances. The Client talks to the consortia service, the
// DataCache remembers which consortium a tenant belongs to, the Sharer asks the central tenant to share
// an Instance into a member tenant, and the Synchronizer keeps the shadow copies in line with the
// central Instance.
package consortium
