// Package httpclient provides a typed Go client for the chunked upload
// REST API. It implements both the chunked and the single-shot transports
// used by the upload coordinator.
//
// Create a client with:
//
//	client, err := httpclient.New("http://localhost:8080/api/upload")
//	if err != nil {
//	   panic(err)
//	}
//
// Then drive a session directly:
//
//	session, err := client.InitUpload(ctx, schema.InitUploadRequest{
//	   FileName: "video.mp4", FileSize: size, Destination: "/media",
//	})
//
// or hand the client to transfer.NewCoordinator.
package httpclient
