/*
Package clients provides a client for the publishing HTTP API.

PublisherClient implements interfaces.Publisher against a remote
content-publisher server, so a local tool can publish through a server the
same way it publishes to a directory or a bucket:

	key, _ := cryptoutils.LoadPrivateKey("alice.pem")
	client := clients.NewPublisherClient("https://pub.example.com",
		clients.WithSigner("alice", key))

	err := interfaces.PutBytes(ctx, client, "posts/hello", body, "text/html")
	err = client.Commit(ctx, "publish hello")

Write requests are signed with cryptoutils.SignRequest when a signer is
configured. Read requests are never signed.

Status codes map back onto the publisher errors: 404 is ErrNotFound, 400 is
ErrInvalidPath and 503 is ErrBackendUnavailable.
*/
package clients
