/*
Package atmosphere provides the records and primitives behind the Atmosphere
cloud control plane: user bookmarks, instances, provider accounts and the
credentials used to provision them.

Data Model

A Provider is an OpenStack cloud. It carries the provider-wide credentials
(auth and admin endpoints, region, router) and points at an administrative
Identity used to create accounts.

An Identity is a user's credentials on a provider. Identities are created when
an account is provisioned.

An AtmosphereUser is a person. Users may ask for their public SSH keys to be
installed on their instances.

An Instance is a virtual machine a user launched on a provider. Deployments
target instances by IP.

An ApplicationBookmark marks an application (image) as a favorite. Bookmarks
always belong to, and are only visible to, a single user.

A Token authenticates API requests as a user.

All records are stored as JSON in a kv store (see pkg/kv) and are saved with
compare-and-swap on the store's modification index, so a stale copy can never
clobber a newer one.
*/
package atmosphere
